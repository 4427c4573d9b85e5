package vehicle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/tag"
)

var (
	ErrVersionMismatch   = errors.New("vehicle format version mismatch")
	ErrMalformedGeometry = errors.New("vehicle geometry is malformed")
	ErrMalformedIdentity = errors.New("vehicle identity is malformed")
	ErrMissingData       = errors.New("vehicle data block is missing")
)

// Encode converts the record into its tagged-value tree. It has no side
// effects and always produces the same tree for the same record.
func Encode(r *Record) tag.Compound {
	seats := &tag.List{Elem: tag.TypeList, Items: make([]tag.Value, 0, len(r.PassengerSeats))}
	for _, s := range r.PassengerSeats {
		seats.Items = append(seats.Items, tag.FloatList(s[0], s[1], s[2]))
	}

	data := tag.Compound{}
	data.SetInt(KeyType, int32(r.Type))
	data.SetString(KeyUUID, r.UUID.String())
	data.SetString(KeyName, r.Name)
	data.SetString(KeyDesign, r.Design)
	data.SetDouble(KeyGravity, r.Gravity)
	data.SetFloat(KeyScale, r.Scale)
	data.SetDouble(KeyForwardSpeed, r.Speed.Forward)
	data.SetDouble(KeyBackwardSpeed, r.Speed.Backward)
	data.SetDouble(KeyLeftSpeed, r.Speed.Left)
	data.SetDouble(KeyRightSpeed, r.Speed.Right)
	data.SetList(KeyBBox, tag.FloatList(r.BBox[:]...))
	data.SetList(KeyDriverSeat, tag.FloatList(r.DriverSeat[:]...))
	data.SetList(KeyPassengerSeats, seats)
	if r.Owner.Valid {
		data.SetString(KeyOwner, r.Owner.UUID.String())
	}
	var locked uint8
	if r.Locked {
		locked = 1
	}
	data.SetByte(KeyLocked, locked)

	version := r.Version
	if version == 0 {
		version = FormatVersion
	}

	root := tag.Compound{}
	root.SetInt(KeyFormatVersion, version)
	root.SetCompound(KeyVehicleData, data)
	return root
}

// Decode rebuilds a record from its tagged-value tree. A failed decode never
// returns a partially built record.
func Decode(root tag.Compound) (*Record, error) {
	version := root.IntOr(KeyFormatVersion, -1)
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, version, FormatVersion)
	}

	data, ok := root.Compound(KeyVehicleData)
	if !ok {
		return nil, ErrMissingData
	}

	r := &Record{
		Version: version,
		Type:    typeFromInt(data.IntOr(KeyType, int32(TypeUnknown))),
	}

	if raw, ok := data.String(KeyUUID); ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: uuid %q", ErrMalformedIdentity, raw)
		}
		r.UUID = id
	} else {
		r.UUID = uuid.New()
	}

	r.Name, _ = data.String(KeyName)
	if r.Name == "" {
		return nil, ErrMissingName
	}
	r.Design, _ = data.String(KeyDesign)
	if r.Design == "" {
		return nil, fmt.Errorf("vehicle '%s': %w", r.Name, ErrMissingDesign)
	}

	r.Gravity = doubleOr(data, KeyGravity)
	r.Scale = floatOr(data, KeyScale)
	r.Speed = Speed{
		Forward:  doubleOr(data, KeyForwardSpeed),
		Backward: doubleOr(data, KeyBackwardSpeed),
		Left:     doubleOr(data, KeyLeftSpeed),
		Right:    doubleOr(data, KeyRightSpeed),
	}

	bbox, err := fixedFloats(data, KeyBBox, len(r.BBox))
	if err != nil {
		return nil, err
	}
	copy(r.BBox[:], bbox)

	driver, err := fixedFloats(data, KeyDriverSeat, len(r.DriverSeat))
	if err != nil {
		return nil, err
	}
	copy(r.DriverSeat[:], driver)

	seats, ok := data.List(KeyPassengerSeats)
	if !ok && data.Has(KeyPassengerSeats) {
		return nil, fmt.Errorf("%w: %s is not a list", ErrMalformedGeometry, KeyPassengerSeats)
	}
	if ok && seats.Len() > 0 {
		r.PassengerSeats = make([]Vec3, 0, seats.Len())
		for i, item := range seats.Items {
			l, isList := item.(*tag.List)
			if !isList {
				return nil, fmt.Errorf("%w: passenger seat %d", ErrMalformedGeometry, i)
			}
			floats, isFloats := l.Floats()
			if !isFloats || len(floats) != 3 {
				return nil, fmt.Errorf("%w: passenger seat %d", ErrMalformedGeometry, i)
			}
			r.PassengerSeats = append(r.PassengerSeats, Vec3{floats[0], floats[1], floats[2]})
		}
	}

	if raw, ok := data.String(KeyOwner); ok && raw != "" {
		owner, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: owner %q", ErrMalformedIdentity, raw)
		}
		r.SetOwner(owner)
	}
	if locked, ok := data.Byte(KeyLocked); ok {
		r.Locked = locked != 0
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Marshal encodes the record straight to binary NBT.
func Marshal(r *Record) ([]byte, error) {
	return tag.Marshal(Encode(r))
}

// Unmarshal decodes a record from binary NBT.
func Unmarshal(data []byte) (*Record, error) {
	root, err := tag.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return Decode(root)
}

func doubleOr(c tag.Compound, key string) float64 {
	if v, ok := c.Double(key); ok {
		return v
	}
	return defaultFloat64(key)
}

func floatOr(c tag.Compound, key string) float32 {
	if v, ok := c.Float(key); ok {
		return v
	}
	return defaultFloat32(key)
}

func fixedFloats(c tag.Compound, key string, n int) ([]float32, error) {
	l, ok := c.List(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing", ErrMalformedGeometry, key)
	}
	floats, ok := l.Floats()
	if !ok || len(floats) != n {
		return nil, fmt.Errorf("%w: %s has %d values, expected %d", ErrMalformedGeometry, key, l.Len(), n)
	}
	return floats, nil
}
