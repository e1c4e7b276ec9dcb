package usecase

import "sync"

type View string

const (
	ViewWelcome       View = "welcome"
	ViewRegister      View = "register"
	ViewDirectChat    View = "direct-chat"
	ViewRoomSelection View = "room-selection"
	ViewRoomList      View = "room-list"
	ViewPublicRooms   View = "public-rooms"
	ViewPublicChat    View = "public-chat"
	ViewChatRoom      View = "chat-room"
)

type RegisterMode string

const (
	RegisterFresh  RegisterMode = "fresh"
	RegisterUpdate RegisterMode = "update"
)

// NextAction is carried through the registration form so a successful signup
// routes to the room kind the user originally asked for.
type NextAction string

const (
	NextDirect NextAction = "direct"
	NextPublic NextAction = "public"
)

type RoomListTab string

const (
	TabJoined    RoomListTab = "joined"
	TabAvailable RoomListTab = "available"
)

// parentView is the fixed back-navigation target per state. There is no
// history stack: public-chat goes back to the public room list, everything
// else returns to the welcome screen.
var parentView = map[View]View{
	ViewWelcome:       ViewWelcome,
	ViewRegister:      ViewWelcome,
	ViewDirectChat:    ViewWelcome,
	ViewRoomSelection: ViewWelcome,
	ViewRoomList:      ViewWelcome,
	ViewPublicRooms:   ViewWelcome,
	ViewPublicChat:    ViewPublicRooms,
	ViewChatRoom:      ViewWelcome,
}

// ViewController owns the single visible screen. Closing the widget hides it
// without resetting any state.
type ViewController struct {
	mu           sync.Mutex
	current      View
	registerMode RegisterMode
	nextAction   NextAction
	roomListTab  RoomListTab
	hidden       bool
	onChange     func(View)
}

func NewViewController() *ViewController {
	return &ViewController{
		current:      ViewWelcome,
		registerMode: RegisterFresh,
		nextAction:   NextDirect,
		roomListTab:  TabJoined,
	}
}

// OnChange registers a callback invoked after every screen transition.
func (v *ViewController) OnChange(fn func(View)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *ViewController) Current() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *ViewController) Show(view View) {
	v.mu.Lock()
	v.current = view
	fn := v.onChange
	v.mu.Unlock()

	if fn != nil {
		fn(view)
	}
}

// ShowRegister switches to the registration screen, remembering whether this
// is a fresh signup or an info update and where to go afterwards.
func (v *ViewController) ShowRegister(mode RegisterMode, next NextAction) {
	v.mu.Lock()
	v.registerMode = mode
	v.nextAction = next
	v.mu.Unlock()
	v.Show(ViewRegister)
}

func (v *ViewController) RegisterMode() RegisterMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registerMode
}

func (v *ViewController) NextAction() NextAction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextAction
}

func (v *ViewController) ShowRoomList(tab RoomListTab) {
	v.mu.Lock()
	v.roomListTab = tab
	v.mu.Unlock()
	v.Show(ViewRoomList)
}

func (v *ViewController) RoomListTab() RoomListTab {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomListTab
}

// Parent returns the fixed back target for a state.
func (v *ViewController) Parent(view View) View {
	if parent, ok := parentView[view]; ok {
		return parent
	}
	return ViewWelcome
}

// Back transitions to the current state's parent and returns the new state.
func (v *ViewController) Back() View {
	parent := v.Parent(v.Current())
	v.Show(parent)
	return parent
}

func (v *ViewController) Hide() {
	v.mu.Lock()
	v.hidden = true
	v.mu.Unlock()
}

func (v *ViewController) Open() {
	v.mu.Lock()
	v.hidden = false
	v.mu.Unlock()
}

func (v *ViewController) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}
