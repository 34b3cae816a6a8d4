// Package session holds the client-side conversation state and the send
// orchestration that drives an answer stream into it.
package session

// Key identifies a conversation on the client. The zero value is the draft
// sentinel: a conversation composed locally that the server has not assigned
// an identifier to yet. A draft key is never sent over the wire.
type Key struct {
	id string
}

// Draft returns the sentinel key for a not-yet-assigned conversation.
func Draft() Key {
	return Key{}
}

// Real returns the key for a server-assigned conversation id.
func Real(id string) Key {
	return Key{id: id}
}

func (k Key) IsDraft() bool {
	return k.id == ""
}

// ID returns the server-assigned id, or the empty string for a draft.
func (k Key) ID() string {
	return k.id
}

func (k Key) String() string {
	if k.IsDraft() {
		return "(draft)"
	}
	return k.id
}
