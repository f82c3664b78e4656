// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "context"

const (
	TopicNotifications = "emergency.notifications"
	TopicStateChanges  = "emergency.state"
)

// Publisher delivers events to in-process subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Subscriber registers for events on one topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Bus is the notification stream the recorder pushes to and the UI consumes.
type Bus interface {
	Publisher
	Subscriber
}

type Subscription interface {
	C() <-chan any
	Close() error
}
