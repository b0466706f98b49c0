package admission

import "fmt"

// MaxBodyBytes is the largest webhook body the pipeline accepts.
const MaxBodyBytes = 256 << 10

// CheckDeclaredLength rejects a declared Content-Length above MaxBodyBytes.
// n <= 0 means the length was not declared.
func CheckDeclaredLength(n int) error {
	if n > MaxBodyBytes {
		return fmt.Errorf("%w: declared %d bytes", ErrPayloadTooLarge, n)
	}
	return nil
}

// CheckActualLength rejects a body that turned out larger than MaxBodyBytes.
func CheckActualLength(body []byte) error {
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("%w: read %d bytes", ErrPayloadTooLarge, len(body))
	}
	return nil
}
