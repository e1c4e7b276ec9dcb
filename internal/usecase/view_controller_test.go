package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewControllerDefaults(t *testing.T) {
	views := NewViewController()

	assert.Equal(t, ViewWelcome, views.Current())
	assert.Equal(t, RegisterFresh, views.RegisterMode())
	assert.Equal(t, NextDirect, views.NextAction())
	assert.Equal(t, TabJoined, views.RoomListTab())
	assert.False(t, views.Hidden())
}

func TestShowRegisterCarriesModeAndNextAction(t *testing.T) {
	views := NewViewController()

	views.ShowRegister(RegisterUpdate, NextPublic)

	assert.Equal(t, ViewRegister, views.Current())
	assert.Equal(t, RegisterUpdate, views.RegisterMode())
	assert.Equal(t, NextPublic, views.NextAction())
}

func TestBackFromPublicChatReturnsToCatalogue(t *testing.T) {
	views := NewViewController()
	views.Show(ViewPublicChat)

	assert.Equal(t, ViewPublicRooms, views.Back())
	assert.Equal(t, ViewPublicRooms, views.Current())
}

func TestBackFromOtherScreensReturnsToWelcome(t *testing.T) {
	views := NewViewController()

	for _, view := range []View{ViewRegister, ViewDirectChat, ViewRoomList, ViewPublicRooms, ViewChatRoom} {
		views.Show(view)
		assert.Equal(t, ViewWelcome, views.Back(), "back from %s", view)
	}
}

func TestHideDoesNotResetState(t *testing.T) {
	views := NewViewController()
	views.Show(ViewDirectChat)

	views.Hide()
	assert.True(t, views.Hidden())
	assert.Equal(t, ViewDirectChat, views.Current())

	views.Open()
	assert.False(t, views.Hidden())
	assert.Equal(t, ViewDirectChat, views.Current())
}

func TestOnChangeFiresPerTransition(t *testing.T) {
	views := NewViewController()
	var seen []View
	views.OnChange(func(v View) { seen = append(seen, v) })

	views.Show(ViewRegister)
	views.ShowRoomList(TabAvailable)
	views.Back()

	assert.Equal(t, []View{ViewRegister, ViewRoomList, ViewWelcome}, seen)
	assert.Equal(t, TabAvailable, views.RoomListTab())
}
