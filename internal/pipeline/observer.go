package pipeline

import "github.com/andresmejia3/facecam/internal/types"

// Observer is the display layer's view of the controller. Callbacks run on
// the controller loop: keep them short and never call back into the
// Controller synchronously from inside one.
type Observer interface {
	OnCameraChange(active bool, deviceID string)
	// OnOverlay replaces the overlay set; nil clears it.
	OnOverlay(faces []types.Face)
	OnStatusChange(text string, active bool)
	OnMatched(name string)
	OnRegistrationProgress(captured, target int)
	OnRegistrationComplete()
	OnError(kind ErrorKind, message string)
}

// NopObserver ignores everything. Embed it to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) OnCameraChange(bool, string)     {}
func (NopObserver) OnOverlay([]types.Face)          {}
func (NopObserver) OnStatusChange(string, bool)     {}
func (NopObserver) OnMatched(string)                {}
func (NopObserver) OnRegistrationProgress(int, int) {}
func (NopObserver) OnRegistrationComplete()         {}
func (NopObserver) OnError(ErrorKind, string)       {}

// Observers fans every event out in order.
type Observers []Observer

func (o Observers) OnCameraChange(active bool, deviceID string) {
	for _, obs := range o {
		obs.OnCameraChange(active, deviceID)
	}
}

func (o Observers) OnOverlay(faces []types.Face) {
	for _, obs := range o {
		obs.OnOverlay(faces)
	}
}

func (o Observers) OnStatusChange(text string, active bool) {
	for _, obs := range o {
		obs.OnStatusChange(text, active)
	}
}

func (o Observers) OnMatched(name string) {
	for _, obs := range o {
		obs.OnMatched(name)
	}
}

func (o Observers) OnRegistrationProgress(captured, target int) {
	for _, obs := range o {
		obs.OnRegistrationProgress(captured, target)
	}
}

func (o Observers) OnRegistrationComplete() {
	for _, obs := range o {
		obs.OnRegistrationComplete()
	}
}

func (o Observers) OnError(kind ErrorKind, message string) {
	for _, obs := range o {
		obs.OnError(kind, message)
	}
}
