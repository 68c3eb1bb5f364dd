// Package tui is the terminal presentation layer. It renders the state
// snapshots published by the synchronizer and turns user input into intents;
// it never owns conversation state itself.
package tui

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/status"
	"github.com/parley-chat/parley/internal/sync"
	"github.com/parley-chat/parley/internal/tui/keys"
	"github.com/parley-chat/parley/internal/tui/views"
	"github.com/rivo/tview"
)

// App is the TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	engine   *sync.Engine
	session  *auth.Store
	bus      *bus.Bus
	registry *keys.Registry

	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	authView  *views.AuthView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp wires the TUI over the synchronizer and session store.
func NewApp(engine *sync.Engine, session *auth.Store, b *bus.Bus, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		engine:    engine,
		session:   session,
		bus:       b,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		authView:  views.NewAuthView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddView("chats", "logout", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Description: "l:logout", Visible: true,
		Handler: func() { a.logout() },
	})
	a.registry.AddView("chats", "read", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:mark read", Visible: true,
		Handler: func() {
			if id := a.convList.SelectedConversation(); id != "" {
				a.engine.MarkAsRead(id)
			}
		},
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		id := a.convList.SelectedConversation()
		if id == "" {
			return
		}
		a.engine.SelectConversation(a.ctx, id)
		a.pages.SwitchToPage("chat")
		a.app.SetFocus(a.composer.InputField)
	})

	a.composer.SetOnSend(func(text string) {
		a.engine.NotifyStopTyping()
		a.engine.Send(a.ctx, text, sync.SendOptions{})
	})

	a.composer.SetOnTyping(func(active bool) {
		if active {
			a.engine.NotifyTyping()
		} else {
			a.engine.NotifyStopTyping()
		}
	})

	a.authView.SetOnLogin(func(c views.Credentials) {
		go func() {
			if err := a.session.Login(a.ctx, c.Email, c.Password); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.authView.ShowMessage("Login failed: " + err.Error())
				})
			}
		}()
	})

	a.authView.SetOnSignUp(func(c views.Credentials) {
		go func() {
			req := gateway.SignUpRequest{Email: c.Email, Password: c.Password, DisplayName: c.DisplayName}
			if err := a.session.SignUp(a.ctx, req); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.authView.ShowMessage("Sign up failed: " + err.Error())
				})
			}
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, true)

	a.pages.AddPage("auth", a.authView, true, false)
	a.pages.AddPage("chats", a.convList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.pages.SwitchToPage("chats")
			a.app.SetFocus(a.convList)
			return nil
		}

		// Text inputs get every key.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

// Run starts the event loop. It blocks until the UI stops.
func (a *App) Run() error {
	snapshots, unsubSnap := a.bus.Subscribe("sync.", 64)
	sessions, unsubSess := a.bus.Subscribe("session.", 16)

	go func() {
		defer unsubSnap()
		defer unsubSess()
		for {
			select {
			case evt := <-snapshots:
				snap, ok := evt.Payload.(sync.Snapshot)
				if !ok {
					continue
				}
				a.app.QueueUpdateDraw(func() { a.render(snap) })
			case evt := <-sessions:
				a.handleSessionEvent(evt)
			case <-a.ctx.Done():
				return
			}
		}
	}()

	if a.session.State() == auth.Authenticated {
		a.showChats()
	} else {
		a.showAuth("")
	}

	return a.app.Run()
}

func (a *App) render(snap sync.Snapshot) {
	if id := a.session.Identity(); id != nil {
		a.msgView.SetSelfID(id.ID)
	}
	a.convList.Update(snap.Conversations, snap.Online)

	currentPage, _ := a.pages.GetFrontPage()
	if currentPage == "chat" && snap.ActiveID != "" {
		for _, c := range snap.Conversations {
			if c.ID == snap.ActiveID {
				name := c.Name
				if name == "" {
					name = c.ID
				}
				a.msgView.SetChatName(name)
				break
			}
		}
		a.msgView.Update(snap.Messages, snap.TypingUsers)
	}

	a.statusBar.SetStatus(connectionLabel(snap.Connection))
}

func (a *App) handleSessionEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSessionAuthenticated:
		a.app.QueueUpdateDraw(func() { a.showChats() })
	case bus.KindSessionLoggedOut:
		a.app.QueueUpdateDraw(func() { a.showAuth("") })
	case bus.KindSessionExpired:
		a.app.QueueUpdateDraw(func() { a.showAuth("Session expired, sign in again") })
	}
}

func (a *App) showChats() {
	a.pages.SwitchToPage("chats")
	a.app.SetFocus(a.convList)
	go func() {
		if err := a.engine.LoadConversations(a.ctx); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash("Load failed: " + err.Error())
			})
		}
	}()
}

func (a *App) showAuth(message string) {
	a.pages.SwitchToPage("auth")
	a.app.SetFocus(a.authView.Form())
	if message != "" {
		a.authView.ShowMessage(message)
	}
}

func (a *App) logout() {
	a.session.Logout()
}

func connectionLabel(s status.State) string {
	switch s {
	case status.Connected:
		return "[green]LIVE[-]"
	case status.Connecting:
		return "[yellow]CONNECTING[-]"
	case status.Error:
		return "[red]ERROR[-]"
	default:
		return "[::d]OFFLINE[-]"
	}
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
