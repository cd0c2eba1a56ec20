package upload

import "fmt"

// ValidationError blocks a submission before anything is sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProtocolError is a non-JSON response where JSON was expected
type ProtocolError struct {
	Status  int
	Preview string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Неожиданный ответ сервера (не JSON): %d. Ответ: %s...", e.Status, e.Preview)
}

// ServerError is an error reported by the server in a JSON body, or a JSON reply without a task id
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Ошибка сервера: %d", e.Status)
}

// TransportError wraps a failure to send the request or read its reply
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Произошла ошибка при отправке запроса: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
