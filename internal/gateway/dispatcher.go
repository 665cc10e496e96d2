package gateway

// Publisher is the interface services use to push row changes to subscribed
// clients. The concrete Manager implements it.
type Publisher interface {
	Publish(change Change, topics ...string)
}
