package device

// DeviceState is a point-in-time view of the physical device attachment.
// The input and serial sides are acquired and released as a unit, so
// InputPresent and SerialPresent move together.
type DeviceState struct {
	InputPresent bool
	InputName    string
	InputPath    string
	InputPhys    string

	SerialPresent bool
	SerialName    string
	SerialPath    string

	// Failing distinguishes "no board attached" (healthy by design) from
	// "a board was seen but could not be acquired" or "a present board was
	// lost and not yet reacquired" (unhealthy). Never-seen stays false.
	Failing bool
}
