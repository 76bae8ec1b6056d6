package hooking

// Hook positions raised by the recording engine.
var (
	// HookPosEventRecorded is triggered after an event is appended to a
	// tracer's log. The Item is an event.Event.
	HookPosEventRecorded = &HookPos{Name: "EventRecorded"}

	// HookPosAnomaly is triggered when the engine recovers from a recording
	// anomaly. The Item is the anomaly value of the reporting component.
	HookPosAnomaly = &HookPos{Name: "Anomaly"}
)
