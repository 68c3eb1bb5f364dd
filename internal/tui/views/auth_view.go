package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// Credentials is what the auth form collects.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthView is the login and registration form.
type AuthView struct {
	*tview.Flex
	form     *tview.Form
	message  *tview.TextView
	onLogin  func(Credentials)
	onSignUp func(Credentials)
}

// NewAuthView creates the auth form.
func NewAuthView() *AuthView {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" Sign In ")

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	av := &AuthView{
		form:    form,
		message: message,
	}

	form.AddInputField("Email", "", 40, nil, nil)
	form.AddPasswordField("Password", "", 40, '*', nil)
	form.AddInputField("Display name (sign up only)", "", 40, nil, nil)
	form.AddButton("Login", func() {
		if av.onLogin != nil {
			av.onLogin(av.credentials())
		}
	})
	form.AddButton("Sign up", func() {
		if av.onSignUp != nil {
			av.onSignUp(av.credentials())
		}
	})

	av.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(message, 1, 0, false)

	return av
}

func (av *AuthView) credentials() Credentials {
	return Credentials{
		Email:       av.form.GetFormItem(0).(*tview.InputField).GetText(),
		Password:    av.form.GetFormItem(1).(*tview.InputField).GetText(),
		DisplayName: av.form.GetFormItem(2).(*tview.InputField).GetText(),
	}
}

// SetOnLogin sets the login callback.
func (av *AuthView) SetOnLogin(fn func(Credentials)) {
	av.onLogin = fn
}

// SetOnSignUp sets the registration callback.
func (av *AuthView) SetOnSignUp(fn func(Credentials)) {
	av.onSignUp = fn
}

// ShowMessage displays a status or error line under the form.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "[yellow]%s[-]", msg)
}

// Form exposes the inner form for focus handling.
func (av *AuthView) Form() *tview.Form {
	return av.form
}
