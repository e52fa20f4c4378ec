package protocol

type MessageType uint8

const (
	MessageTypeHello  MessageType = 1
	MessageTypeSeal   MessageType = 2
	MessageTypeOpen   MessageType = 3
	MessageTypeResult MessageType = 4
	MessageTypeError  MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "HELLO"
	case MessageTypeSeal:
		return "SEAL"
	case MessageTypeOpen:
		return "OPEN"
	case MessageTypeResult:
		return "RESULT"
	case MessageTypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
