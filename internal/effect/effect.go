// Package effect describes the side effects a form transition asks its owner to
// perform: flash notifications and navigation.
package effect

// Level is the flash style of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelDanger  Level = "danger"
	LevelInfo    Level = "info"
)

// Notification is a one-shot message for the operator.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Navigation asks the owner to move to a named view.
type Navigation struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
}

// Effect is either a notification or a navigation.
type Effect struct {
	Notification *Notification `json:"notification,omitempty"`
	Navigation   *Navigation   `json:"navigation,omitempty"`
}

// Notify builds a notification effect.
func Notify(level Level, message string) Effect {
	return Effect{Notification: &Notification{Level: level, Message: message}}
}

// Navigate builds a navigation effect.
func Navigate(route string, params map[string]string) Effect {
	return Effect{Navigation: &Navigation{Route: route, Params: params}}
}

// Notifications returns the notifications among effects, in order.
func Notifications(effects []Effect) []Notification {
	var out []Notification
	for _, e := range effects {
		if e.Notification != nil {
			out = append(out, *e.Notification)
		}
	}
	return out
}

// Navigations returns the navigations among effects, in order.
func Navigations(effects []Effect) []Navigation {
	var out []Navigation
	for _, e := range effects {
		if e.Navigation != nil {
			out = append(out, *e.Navigation)
		}
	}
	return out
}
