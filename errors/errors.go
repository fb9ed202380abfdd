package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrRoomNotFound        = fmt.Errorf("room not found")
	ErrRoomExpired         = fmt.Errorf("room expired")
	ErrDecrypt             = fmt.Errorf("cannot open sealed data")
	ErrMalformedAttachment = fmt.Errorf("attachment must carry name, media type and data")
	ErrSinkSaturated       = fmt.Errorf("session outbound channel saturated or closed")
	ErrAlreadyJoined       = fmt.Errorf("connection already joined a room")
	ErrNotJoined           = fmt.Errorf("connection has not joined a room")
)
