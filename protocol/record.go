package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Field widths of the fixed-size records exchanged over UDP.
const (
	MachineNameSize  = 100
	OperationSize    = 200
	ReturnStringSize = 1024
)

const (
	StatusOK    int32 = 0
	StatusError int32 = -1
)

var (
	ErrFieldTooLong = errors.New("field too long")
	ErrShortRecord  = errors.New("record has wrong size")
)

// Request is what a client sends for every command in its script.
type Request struct {
	MachineName       string // Name of the machine the client runs on
	ClientNumber      int32  // Client number, unique per machine
	RequestNumber     int32  // Increases per request within one incarnation
	ClientIncarnation int32  // Bumped by the client each time it crashes
	Operation         string // e.g. `write notes "hello"`
}

// Response is what the server sends back, and what it caches for replays.
type Response struct {
	ReturnValue  int32
	ReturnString string
}

type wireRequest struct {
	MachineName       [MachineNameSize]byte
	ClientNumber      int32
	RequestNumber     int32
	ClientIncarnation int32
	Operation         [OperationSize]byte
}

type wireResponse struct {
	ReturnValue  int32
	ReturnString [ReturnStringSize]byte
}

var (
	RequestSize  = binary.Size(wireRequest{})
	ResponseSize = binary.Size(wireResponse{})
)

func (r Response) OK() bool {
	return r.ReturnValue == StatusOK
}

func (r Response) String() string {
	return fmt.Sprintf("%d %q", r.ReturnValue, r.ReturnString)
}

// Key identifies the sender of a request in log lines: machine:client.incarnation_request.
func (r Request) Key() string {
	return fmt.Sprintf("%s:%d.%d_%d", r.MachineName, r.ClientNumber, r.ClientIncarnation, r.RequestNumber)
}

// putString copies s into dst leaving room for the terminating NUL.
func putString(dst []byte, s string, field string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("%s is %d bytes, limit %d: %w", field, len(s), len(dst)-1, ErrFieldTooLong)
	}
	copy(dst, s)
	return nil
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// MarshalBinary encodes the request into exactly RequestSize bytes.
func (r Request) MarshalBinary() ([]byte, error) {
	var w wireRequest
	if err := putString(w.MachineName[:], r.MachineName, "machine name"); err != nil {
		return nil, err
	}
	if err := putString(w.Operation[:], r.Operation, "operation"); err != nil {
		return nil, err
	}
	w.ClientNumber = r.ClientNumber
	w.RequestNumber = r.RequestNumber
	w.ClientIncarnation = r.ClientIncarnation

	buf := bytes.NewBuffer(make([]byte, 0, RequestSize))
	if err := binary.Write(buf, binary.LittleEndian, &w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a datagram; anything but RequestSize bytes is rejected.
func (r *Request) UnmarshalBinary(data []byte) error {
	if len(data) != RequestSize {
		return fmt.Errorf("request of %d bytes instead of %d: %w", len(data), RequestSize, ErrShortRecord)
	}
	var w wireRequest
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return err
	}
	*r = Request{
		MachineName:       getString(w.MachineName[:]),
		ClientNumber:      w.ClientNumber,
		RequestNumber:     w.RequestNumber,
		ClientIncarnation: w.ClientIncarnation,
		Operation:         getString(w.Operation[:]),
	}
	return nil
}

// MarshalBinary encodes the response into exactly ResponseSize bytes. A
// message longer than the field is cut to fit.
func (r Response) MarshalBinary() ([]byte, error) {
	w := wireResponse{ReturnValue: r.ReturnValue}
	msg := r.ReturnString
	if len(msg) >= ReturnStringSize {
		msg = msg[:ReturnStringSize-1]
	}
	copy(w.ReturnString[:], msg)

	buf := bytes.NewBuffer(make([]byte, 0, ResponseSize))
	if err := binary.Write(buf, binary.LittleEndian, &w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Response) UnmarshalBinary(data []byte) error {
	if len(data) != ResponseSize {
		return fmt.Errorf("response of %d bytes instead of %d: %w", len(data), ResponseSize, ErrShortRecord)
	}
	var w wireResponse
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return err
	}
	*r = Response{
		ReturnValue:  w.ReturnValue,
		ReturnString: getString(w.ReturnString[:]),
	}
	return nil
}

// Truncate returns the response as the client will see it after encoding.
func (r Response) Truncate() Response {
	if len(r.ReturnString) >= ReturnStringSize {
		r.ReturnString = r.ReturnString[:ReturnStringSize-1]
	}
	return r
}
