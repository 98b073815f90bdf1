package srpc

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Packet is the single wire unit exchanged between srpc peers. Exactly one
// of CallStart, CallData, or CallCancel is set.
type Packet struct {
	// Body is the oneof packet body: *Packet_CallStart, *Packet_CallData,
	// or *Packet_CallCancel.
	Body isPacketBody
}

// isPacketBody is implemented by the three Packet body variants.
type isPacketBody interface {
	isPacketBody()
}

// Packet_CallStart wraps a CallStart packet body.
type Packet_CallStart struct {
	CallStart *CallStart
}

// Packet_CallData wraps a CallData packet body.
type Packet_CallData struct {
	CallData *CallData
}

// Packet_CallCancel wraps a CallCancel packet body.
type Packet_CallCancel struct {
	CallCancel bool
}

func (*Packet_CallStart) isPacketBody()  {}
func (*Packet_CallData) isPacketBody()   {}
func (*Packet_CallCancel) isPacketBody() {}

// GetBody returns the packet body, or nil if unset.
func (p *Packet) GetBody() isPacketBody {
	if p == nil {
		return nil
	}
	return p.Body
}

// GetCallStart returns the CallStart body, or nil if not set.
func (p *Packet) GetCallStart() *CallStart {
	if p != nil {
		if b, ok := p.Body.(*Packet_CallStart); ok {
			return b.CallStart
		}
	}
	return nil
}

// GetCallData returns the CallData body, or nil if not set.
func (p *Packet) GetCallData() *CallData {
	if p != nil {
		if b, ok := p.Body.(*Packet_CallData); ok {
			return b.CallData
		}
	}
	return nil
}

// GetCallCancel returns the CallCancel body value.
func (p *Packet) GetCallCancel() bool {
	if p != nil {
		if b, ok := p.Body.(*Packet_CallCancel); ok {
			return b.CallCancel
		}
	}
	return false
}

// IsCallStart returns true if the packet body is CallStart.
func (p *Packet) IsCallStart() bool {
	_, ok := p.GetBody().(*Packet_CallStart)
	return ok
}

// IsCallData returns true if the packet body is CallData.
func (p *Packet) IsCallData() bool {
	_, ok := p.GetBody().(*Packet_CallData)
	return ok
}

// IsCallCancel returns true if the packet body is CallCancel.
func (p *Packet) IsCallCancel() bool {
	_, ok := p.GetBody().(*Packet_CallCancel)
	return ok
}

// bodyTypeName returns a short human-readable name for the packet body, used
// in error messages.
func (p *Packet) bodyTypeName() string {
	switch p.GetBody().(type) {
	case *Packet_CallStart:
		return "CallStart"
	case *Packet_CallData:
		return "CallData"
	case *Packet_CallCancel:
		return "CallCancel"
	default:
		return "empty"
	}
}

// Validate checks the packet against the wire-level validation invariants.
func (p *Packet) Validate() error {
	switch b := p.GetBody().(type) {
	case *Packet_CallStart:
		return b.CallStart.Validate()
	case *Packet_CallData:
		return b.CallData.Validate()
	case *Packet_CallCancel:
		return nil
	default:
		return ErrEmptyPacket
	}
}

// CallStart opens a call. Data is an optional initial payload, encoded per
// the data/data_is_zero convention.
type CallStart struct {
	RpcService string
	RpcMethod  string
	Data       []byte
	DataIsZero bool
}

// GetRpcService returns the service name.
func (c *CallStart) GetRpcService() string {
	if c == nil {
		return ""
	}
	return c.RpcService
}

// GetRpcMethod returns the method name.
func (c *CallStart) GetRpcMethod() string {
	if c == nil {
		return ""
	}
	return c.RpcMethod
}

// GetData returns the optional initial payload bytes (may be empty).
func (c *CallStart) GetData() []byte {
	if c == nil {
		return nil
	}
	return c.Data
}

// GetDataIsZero returns the data_is_zero flag.
func (c *CallStart) GetDataIsZero() bool {
	if c == nil {
		return false
	}
	return c.DataIsZero
}

// Validate checks the CallStart invariants: service and method non-empty.
func (c *CallStart) Validate() error {
	if c.GetRpcService() == "" {
		return ErrEmptyServiceId
	}
	if c.GetRpcMethod() == "" {
		return ErrEmptyMethodId
	}
	return nil
}

// CallData carries subsequent payloads, half-close, or a terminal remote
// error for an in-progress call.
type CallData struct {
	Data       []byte
	DataIsZero bool
	Complete   bool
	Error      string
}

// GetData returns the payload bytes (may be empty).
func (c *CallData) GetData() []byte {
	if c == nil {
		return nil
	}
	return c.Data
}

// GetDataIsZero returns the data_is_zero flag.
func (c *CallData) GetDataIsZero() bool {
	if c == nil {
		return false
	}
	return c.DataIsZero
}

// GetComplete returns the complete flag.
func (c *CallData) GetComplete() bool {
	if c == nil {
		return false
	}
	return c.Complete
}

// GetError returns the terminal error string, if any.
func (c *CallData) GetError() string {
	if c == nil {
		return ""
	}
	return c.Error
}

// Validate checks the CallData invariants: at least one of {non-empty data,
// data_is_zero, complete, non-empty error} must hold.
func (c *CallData) Validate() error {
	if len(c.GetData()) == 0 && !c.GetDataIsZero() && !c.GetComplete() && c.GetError() == "" {
		return ErrEmptyPacket
	}
	return nil
}

// NewCallStartPacket constructs a Packet carrying a CallStart body.
func NewCallStartPacket(service, method string, data []byte, dataIsZero bool) *Packet {
	return &Packet{Body: &Packet_CallStart{CallStart: &CallStart{
		RpcService: service,
		RpcMethod:  method,
		Data:       data,
		DataIsZero: dataIsZero,
	}}}
}

// NewCallDataPacket constructs a Packet carrying a CallData body, completing
// the call if complete is set or err is non-nil.
func NewCallDataPacket(data []byte, complete bool, err error) *Packet {
	cd := &CallData{Data: data, Complete: complete}
	if err != nil {
		cd.Error = err.Error()
		cd.Complete = true
	}
	return &Packet{Body: &Packet_CallData{CallData: cd}}
}

// NewCallDataPacketFull constructs a Packet carrying a CallData body with an
// explicit data_is_zero flag.
func NewCallDataPacketFull(data []byte, dataIsZero, complete bool, errMsg string) *Packet {
	return &Packet{Body: &Packet_CallData{CallData: &CallData{
		Data:       data,
		DataIsZero: dataIsZero,
		Complete:   complete,
		Error:      errMsg,
	}}}
}

// NewCallCancelPacket constructs a Packet carrying a CallCancel body.
func NewCallCancelPacket(cancel bool) *Packet {
	return &Packet{Body: &Packet_CallCancel{CallCancel: cancel}}
}

// encodeOptionalData encodes an optional payload per the data/data_is_zero
// convention: nil means "no data field", a non-nil empty slice means
// "explicit empty payload".
func encodeOptionalData(data []byte) ([]byte, bool) {
	if data == nil {
		return nil, false
	}
	if len(data) == 0 {
		return nil, true
	}
	return data, false
}

// decodeOptionalData inverts encodeOptionalData: returns nil if no data was
// included, or a (possibly empty) byte slice if present.
func decodeOptionalData(data []byte, dataIsZero bool) []byte {
	if len(data) != 0 {
		return data
	}
	if dataIsZero {
		return []byte{}
	}
	return nil
}

// --- vtprotobuf-style wire encoding ---
//
// These Marshal/Unmarshal methods are hand-written against
// google.golang.org/protobuf/encoding/protowire, following the same
// low-level tag/varint/bytes primitives vtprotobuf-generated code would use.

const (
	packetCallStartFieldNum  = 1
	packetCallDataFieldNum   = 2
	packetCallCancelFieldNum = 3

	callStartServiceFieldNum    = 1
	callStartMethodFieldNum     = 2
	callStartDataFieldNum       = 3
	callStartDataIsZeroFieldNum = 4

	callDataDataFieldNum       = 1
	callDataDataIsZeroFieldNum = 2
	callDataCompleteFieldNum   = 3
	callDataErrorFieldNum      = 4
)

// MarshalVT encodes the Packet to wire bytes.
func (p *Packet) MarshalVT() ([]byte, error) {
	var buf []byte
	switch b := p.GetBody().(type) {
	case *Packet_CallStart:
		inner, err := b.CallStart.MarshalVT()
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, packetCallStartFieldNum, protowire.BytesType)
		buf = protowire.AppendBytes(buf, inner)
	case *Packet_CallData:
		inner, err := b.CallData.MarshalVT()
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, packetCallDataFieldNum, protowire.BytesType)
		buf = protowire.AppendBytes(buf, inner)
	case *Packet_CallCancel:
		buf = protowire.AppendTag(buf, packetCallCancelFieldNum, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeBool(b.CallCancel))
	}
	return buf, nil
}

// UnmarshalVT decodes the Packet from wire bytes.
func (p *Packet) UnmarshalVT(data []byte) error {
	p.Body = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrInvalidMessage, "packet: bad tag")
		}
		data = data[n:]
		switch num {
		case packetCallStartFieldNum:
			inner, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "packet: bad call_start")
			}
			data = data[n:]
			cs := &CallStart{}
			if err := cs.UnmarshalVT(inner); err != nil {
				return err
			}
			p.Body = &Packet_CallStart{CallStart: cs}
		case packetCallDataFieldNum:
			inner, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "packet: bad call_data")
			}
			data = data[n:]
			cd := &CallData{}
			if err := cd.UnmarshalVT(inner); err != nil {
				return err
			}
			p.Body = &Packet_CallData{CallData: cd}
		case packetCallCancelFieldNum:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "packet: bad call_cancel")
			}
			data = data[n:]
			p.Body = &Packet_CallCancel{CallCancel: protowire.DecodeBool(v)}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "packet: bad field")
			}
			data = data[n:]
		}
	}
	return nil
}

// MarshalVT encodes the CallStart to wire bytes.
func (c *CallStart) MarshalVT() ([]byte, error) {
	var buf []byte
	if c.RpcService != "" {
		buf = protowire.AppendTag(buf, callStartServiceFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, c.RpcService)
	}
	if c.RpcMethod != "" {
		buf = protowire.AppendTag(buf, callStartMethodFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, c.RpcMethod)
	}
	if len(c.Data) != 0 {
		buf = protowire.AppendTag(buf, callStartDataFieldNum, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c.Data)
	}
	if c.DataIsZero {
		buf = protowire.AppendTag(buf, callStartDataIsZeroFieldNum, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeBool(c.DataIsZero))
	}
	return buf, nil
}

// UnmarshalVT decodes the CallStart from wire bytes.
func (c *CallStart) UnmarshalVT(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrInvalidMessage, "call_start: bad tag")
		}
		data = data[n:]
		switch num {
		case callStartServiceFieldNum:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_start: bad service")
			}
			c.RpcService = v
			data = data[n:]
		case callStartMethodFieldNum:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_start: bad method")
			}
			c.RpcMethod = v
			data = data[n:]
		case callStartDataFieldNum:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_start: bad data")
			}
			c.Data = append([]byte(nil), v...)
			data = data[n:]
		case callStartDataIsZeroFieldNum:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_start: bad data_is_zero")
			}
			c.DataIsZero = protowire.DecodeBool(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_start: bad field")
			}
			data = data[n:]
		}
	}
	return nil
}

// MarshalVT encodes the CallData to wire bytes.
func (c *CallData) MarshalVT() ([]byte, error) {
	var buf []byte
	if len(c.Data) != 0 {
		buf = protowire.AppendTag(buf, callDataDataFieldNum, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c.Data)
	}
	if c.DataIsZero {
		buf = protowire.AppendTag(buf, callDataDataIsZeroFieldNum, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeBool(c.DataIsZero))
	}
	if c.Complete {
		buf = protowire.AppendTag(buf, callDataCompleteFieldNum, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeBool(c.Complete))
	}
	if c.Error != "" {
		buf = protowire.AppendTag(buf, callDataErrorFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, c.Error)
	}
	return buf, nil
}

// UnmarshalVT decodes the CallData from wire bytes.
func (c *CallData) UnmarshalVT(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrInvalidMessage, "call_data: bad tag")
		}
		data = data[n:]
		switch num {
		case callDataDataFieldNum:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_data: bad data")
			}
			c.Data = append([]byte(nil), v...)
			data = data[n:]
		case callDataDataIsZeroFieldNum:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_data: bad data_is_zero")
			}
			c.DataIsZero = protowire.DecodeBool(v)
			data = data[n:]
		case callDataCompleteFieldNum:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_data: bad complete")
			}
			c.Complete = protowire.DecodeBool(v)
			data = data[n:]
		case callDataErrorFieldNum:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_data: bad error")
			}
			c.Error = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(ErrInvalidMessage, "call_data: bad field")
			}
			data = data[n:]
		}
	}
	return nil
}

// _ are type assertions
var (
	_ Message = ((*Packet)(nil))
	_ Message = ((*CallStart)(nil))
	_ Message = ((*CallData)(nil))
)
