package email

import "time"

const Subject = "Secure Message with Signature"

// Details is what the send-email endpoint returns and the client displays.
type Details struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Signed    bool      `json:"signed"`
	Time      time.Time `json:"time"`
	Signature string    `json:"signature,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Record is one persisted send attempt, successful or not.
type Record struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Signature string    `json:"signature,omitempty"`
	Signed    bool      `json:"signed"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"time"`
}

func (r Record) Details() Details {
	return Details{
		Recipient: r.Recipient,
		Message:   r.Message,
		Signed:    r.Signed,
		Time:      r.SentAt,
		Signature: r.Signature,
		Error:     r.Error,
	}
}

type SendEmailRequest struct {
	Email   string `json:"email" binding:"required,email,max=320"`
	Message string `json:"message" binding:"required,max=65536"`
}

type VerifySignatureRequest struct {
	Message   string `json:"message" binding:"required,max=65536"`
	Signature string `json:"signature" binding:"required,max=512"`
}

type VerifySignatureResponse struct {
	IsValid bool `json:"isValid"`
}

// Body is the plain-text mail body carrying the message and its signature.
func Body(message, signature string) string {
	return "Message:\n" + message + "\n\nSignature:\n" + signature
}
