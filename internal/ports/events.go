package ports

// Topics publiés par le moteur de synchro.
const (
	TopicMediaReady   = "media.ready"
	TopicListUpdated  = "list.updated"
	TopicAuthRequired = "auth.required"
	TopicSyncError    = "sync.error"
)

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
