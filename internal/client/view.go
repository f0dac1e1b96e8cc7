package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/domain/user"
)

// FallbackSendError is shown on a failed send when the server gave no
// error text of its own.
const FallbackSendError = "Failed to send email. Please try again later."

type Form string

const (
	FormAddUser Form = "add-user"
	FormDecrypt Form = "decrypt"
	FormEmail   Form = "send-email"
	FormVerify  Form = "verify-signature"
)

type UserForm struct {
	Name     string
	Password string
}

type DecryptForm struct {
	GlobalPassword string
}

type EmailForm struct {
	Email   string
	Message string
}

type VerifyForm struct {
	Message   string
	Signature string
}

// State is a point-in-time copy of everything the four forms display.
type State struct {
	AddUser UserForm
	Decrypt DecryptForm
	Email   EmailForm
	Verify  VerifyForm

	Users        []user.Record
	EmailDetails *email.Details
	VerifyResult *bool
	Errors       map[Form]string
}

type API interface {
	AddUser(ctx context.Context, name, password string) ([]user.Record, error)
	Decrypt(ctx context.Context, globalPassword string) ([]user.Record, error)
	SendEmail(ctx context.Context, recipient, message string) (*email.Details, error)
	VerifySignature(ctx context.Context, message, signature string) (bool, error)
}

// View holds the state of the four forms and submits them through an API.
// Each form has at most one submission in flight; forms don't block each
// other.
type View struct {
	api API
	log *slog.Logger
	now func() time.Time

	inflight map[Form]*sync.Mutex

	mu    sync.RWMutex
	state State
}

func NewView(api API, log *slog.Logger) *View {
	return &View{
		api: api,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
		inflight: map[Form]*sync.Mutex{
			FormAddUser: {},
			FormDecrypt: {},
			FormEmail:   {},
			FormVerify:  {},
		},
		state: State{
			Users:  []user.Record{},
			Errors: map[Form]string{},
		},
	}
}

func (v *View) SetAddUser(name, password string) {
	v.mu.Lock()
	v.state.AddUser = UserForm{Name: name, Password: password}
	v.mu.Unlock()
}

func (v *View) SetDecrypt(globalPassword string) {
	v.mu.Lock()
	v.state.Decrypt = DecryptForm{GlobalPassword: globalPassword}
	v.mu.Unlock()
}

func (v *View) SetEmail(recipient, message string) {
	v.mu.Lock()
	v.state.Email = EmailForm{Email: recipient, Message: message}
	v.mu.Unlock()
}

func (v *View) SetVerify(message, signature string) {
	v.mu.Lock()
	v.state.Verify = VerifyForm{Message: message, Signature: signature}
	v.mu.Unlock()
}

func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := v.state
	s.Users = append([]user.Record(nil), v.state.Users...)
	if v.state.EmailDetails != nil {
		d := *v.state.EmailDetails
		s.EmailDetails = &d
	}
	if v.state.VerifyResult != nil {
		b := *v.state.VerifyResult
		s.VerifyResult = &b
	}
	s.Errors = make(map[Form]string, len(v.state.Errors))
	for k, e := range v.state.Errors {
		s.Errors[k] = e
	}
	return s
}

// SubmitAddUser replaces the user list with the server's and clears the
// inputs. On failure the inputs stay and the form carries the error.
func (v *View) SubmitAddUser(ctx context.Context) error {
	unlock := v.begin(FormAddUser)
	defer unlock()

	v.mu.RLock()
	form := v.state.AddUser
	v.mu.RUnlock()

	users, err := v.api.AddUser(ctx, form.Name, form.Password)
	if err != nil {
		v.fail(ctx, FormAddUser, err)
		return err
	}

	v.mu.Lock()
	v.state.Users = users
	v.state.AddUser = UserForm{}
	delete(v.state.Errors, FormAddUser)
	v.mu.Unlock()

	return nil
}

func (v *View) SubmitDecrypt(ctx context.Context) error {
	unlock := v.begin(FormDecrypt)
	defer unlock()

	v.mu.RLock()
	form := v.state.Decrypt
	v.mu.RUnlock()

	users, err := v.api.Decrypt(ctx, form.GlobalPassword)
	if err != nil {
		v.fail(ctx, FormDecrypt, err)
		return err
	}

	v.mu.Lock()
	v.state.Users = users
	v.state.Decrypt = DecryptForm{}
	delete(v.state.Errors, FormDecrypt)
	v.mu.Unlock()

	return nil
}

// SubmitEmail shows the server's details and clears the inputs. A failed
// send still shows a record, unsigned, carrying the error text.
func (v *View) SubmitEmail(ctx context.Context) error {
	unlock := v.begin(FormEmail)
	defer unlock()

	v.mu.RLock()
	form := v.state.Email
	v.mu.RUnlock()

	details, err := v.api.SendEmail(ctx, form.Email, form.Message)
	if err != nil {
		msg := FallbackSendError
		if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
			msg = apiErr.Message
		}

		v.log.ErrorContext(ctx, "error sending email", "err", err)

		v.mu.Lock()
		v.state.EmailDetails = &email.Details{
			Recipient: form.Email,
			Message:   form.Message,
			Signed:    false,
			Time:      v.now(),
			Error:     msg,
		}
		v.state.Errors[FormEmail] = msg
		v.mu.Unlock()

		return err
	}

	if details == nil {
		v.log.WarnContext(ctx, "email sent but response had no emailDetails")
		return nil
	}

	v.mu.Lock()
	v.state.EmailDetails = details
	v.state.Email = EmailForm{}
	delete(v.state.Errors, FormEmail)
	v.mu.Unlock()

	return nil
}

// SubmitVerify stores the verdict and clears the inputs. Any failure,
// including a response without isValid, drops the previous verdict.
func (v *View) SubmitVerify(ctx context.Context) error {
	unlock := v.begin(FormVerify)
	defer unlock()

	v.mu.RLock()
	form := v.state.Verify
	v.mu.RUnlock()

	valid, err := v.api.VerifySignature(ctx, form.Message, form.Signature)
	if err != nil {
		v.mu.Lock()
		v.state.VerifyResult = nil
		v.mu.Unlock()

		v.fail(ctx, FormVerify, err)
		return err
	}

	v.mu.Lock()
	v.state.VerifyResult = &valid
	v.state.Verify = VerifyForm{}
	delete(v.state.Errors, FormVerify)
	v.mu.Unlock()

	return nil
}

func (v *View) begin(f Form) func() {
	m := v.inflight[f]
	m.Lock()
	return m.Unlock
}

func (v *View) fail(ctx context.Context, f Form, err error) {
	v.log.ErrorContext(ctx, "form submission failed", "form", string(f), "err", err)

	msg := err.Error()
	if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
		msg = apiErr.Message
	}

	v.mu.Lock()
	v.state.Errors[f] = msg
	v.mu.Unlock()
}
