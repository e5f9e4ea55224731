package session

// Screen is a navigation destination in the client app.
type Screen string

const (
	ScreenLogin               Screen = "login"
	ScreenAssistant           Screen = "assistant"
	ScreenConversationHistory Screen = "conversation_history"
	ScreenTraining            Screen = "training"
	ScreenCourseDetail        Screen = "course_detail"
	ScreenChat                Screen = "chat"
	ScreenMarketplace         Screen = "marketplace"
	ScreenCreateService       Screen = "create_service"
	ScreenEditService         Screen = "edit_service"
	ScreenProfile             Screen = "profile"
	ScreenSubscription        Screen = "subscription"
	ScreenPremiumContent      Screen = "premium_content"
	ScreenAdminPanel          Screen = "admin_panel"
)

var freeScreens = []Screen{
	ScreenAssistant,
	ScreenConversationHistory,
	ScreenTraining,
	ScreenCourseDetail,
	ScreenChat,
	ScreenMarketplace,
	ScreenCreateService,
	ScreenEditService,
	ScreenProfile,
	ScreenSubscription,
}

var screensByState = func() map[State][]Screen {
	premium := append(append([]Screen{}, freeScreens...), ScreenPremiumContent)
	admin := append(append([]Screen{}, premium...), ScreenAdminPanel)
	return map[State][]Screen{
		Loading:              nil,
		Unauthenticated:      {ScreenLogin},
		AuthenticatedFree:    freeScreens,
		AuthenticatedPremium: premium,
		AuthenticatedAdmin:   admin,
	}
}()

// ScreensFor lists what a state may navigate to. Loading shows only the splash.
func ScreensFor(s State) []Screen {
	return append([]Screen(nil), screensByState[s]...)
}

func Allowed(s State, screen Screen) bool {
	for _, sc := range screensByState[s] {
		if sc == screen {
			return true
		}
	}
	return false
}
