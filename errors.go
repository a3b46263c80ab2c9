package courier

import "errors"

var (
	ErrMessageIDRequired    = errors.New("message id is required")
	ErrMessageTopicRequired = errors.New("message topic is required")
	ErrMessageTypeInvalid   = errors.New("invalid message type")
	ErrMessageBodyRequired  = errors.New("message body is required")
)
