package vehicle

// Persistence keys.
const (
	KeyFormatVersion  = "formatVersion"
	KeyVehicleData    = "vehicleData"
	KeyType           = "type"
	KeyUUID           = "uuid"
	KeyName           = "name"
	KeyDesign         = "design"
	KeyGravity        = "gravity"
	KeyScale          = "scale"
	KeyForwardSpeed   = "forwardSpeed"
	KeyBackwardSpeed  = "backwardSpeed"
	KeyLeftSpeed      = "leftSpeed"
	KeyRightSpeed     = "rightSpeed"
	KeyBBox           = "bbox"
	KeyDriverSeat     = "driverSeat"
	KeyPassengerSeats = "passengerSeats"
	KeyOwner          = "owner"
	KeyLocked         = "locked"
)

// Policy says what Decode does when a field is absent.
type Policy int

const (
	// PolicyStrict fails the load when the value differs from the expected one.
	PolicyStrict Policy = iota
	// PolicyRequired fails the load when the field is absent or empty.
	PolicyRequired
	// PolicyDefault substitutes Default.
	PolicyDefault
	// PolicyGenerate substitutes a freshly generated value.
	PolicyGenerate
	// PolicyOptional leaves the field unset.
	PolicyOptional
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyRequired:
		return "required"
	case PolicyDefault:
		return "default"
	case PolicyGenerate:
		return "generate"
	case PolicyOptional:
		return "optional"
	}
	return "unknown"
}

// FieldPolicy describes how one persisted field is validated on load.
type FieldPolicy struct {
	Key     string
	Policy  Policy
	Default any
	// Err is returned when a strict or required check fails.
	Err error
}

// FieldPolicies is the load policy for every persisted field. The version is
// checked strictly while numeric tuning fields fall back to defaults; geometry
// must always be present with the exact arity.
var FieldPolicies = []FieldPolicy{
	{Key: KeyFormatVersion, Policy: PolicyStrict, Default: FormatVersion, Err: ErrVersionMismatch},
	{Key: KeyType, Policy: PolicyDefault, Default: TypeUnknown},
	{Key: KeyUUID, Policy: PolicyGenerate},
	{Key: KeyName, Policy: PolicyRequired, Err: ErrMissingName},
	{Key: KeyDesign, Policy: PolicyRequired, Err: ErrMissingDesign},
	{Key: KeyGravity, Policy: PolicyDefault, Default: 1.0},
	{Key: KeyScale, Policy: PolicyDefault, Default: float32(DefaultScale)},
	{Key: KeyForwardSpeed, Policy: PolicyDefault, Default: 1.0},
	{Key: KeyBackwardSpeed, Policy: PolicyDefault, Default: 1.0},
	{Key: KeyLeftSpeed, Policy: PolicyDefault, Default: 1.0},
	{Key: KeyRightSpeed, Policy: PolicyDefault, Default: 1.0},
	{Key: KeyBBox, Policy: PolicyRequired, Err: ErrMalformedGeometry},
	{Key: KeyDriverSeat, Policy: PolicyRequired, Err: ErrMalformedGeometry},
	{Key: KeyPassengerSeats, Policy: PolicyDefault, Default: []Vec3(nil)},
	{Key: KeyOwner, Policy: PolicyOptional},
	{Key: KeyLocked, Policy: PolicyDefault, Default: false},
}

// DefaultScale applies to fresh records and to saves without a scale.
const DefaultScale = 1.0

// PolicyFor returns the policy registered for key.
func PolicyFor(key string) (FieldPolicy, bool) {
	for _, p := range FieldPolicies {
		if p.Key == key {
			return p, true
		}
	}
	return FieldPolicy{}, false
}

func defaultFloat64(key string) float64 {
	p, _ := PolicyFor(key)
	if v, ok := p.Default.(float64); ok {
		return v
	}
	return 0
}

func defaultFloat32(key string) float32 {
	p, _ := PolicyFor(key)
	if v, ok := p.Default.(float32); ok {
		return v
	}
	return 0
}
