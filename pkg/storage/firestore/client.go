package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Raw exposes the underlying Firestore client for batched writes.
func (c *Client) Raw() *firestore.Client {
	return c.fs
}

// GarminQueue is the durable activity-import queue:
// garminHealthAPIActivityQueue/{id}
func (c *Client) GarminQueue() *Collection[types.QueueItem] {
	return &Collection[types.QueueItem]{
		Ref:           c.fs.Collection(shared.CollectionGarminQueue),
		ToFirestore:   QueueItemToFirestore,
		FromFirestore: FirestoreToQueueItem,
	}
}

// GarminTokens holds per-user OAuth1 token material:
// garminHealthAPITokens/{id}, queried by the userID field.
func (c *Client) GarminTokens() *Collection[types.ServiceCredential] {
	return &Collection[types.ServiceCredential]{
		Ref:           c.fs.Collection(shared.CollectionGarminToken),
		ToFirestore:   CredentialToFirestore,
		FromFirestore: FirestoreToCredential,
	}
}

// UserEvents are sub-collections of Users: users/{uid}/events/{id}
func (c *Client) UserEvents(userID string) *Collection[types.DomainEvent] {
	return &Collection[types.DomainEvent]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userID).Collection(shared.CollectionEvents),
		ToFirestore:   EventToFirestore,
		FromFirestore: FirestoreToEvent,
	}
}

// EventMetaData are sub-collections of events:
// users/{uid}/events/{id}/metaData/{serviceName}
func (c *Client) EventMetaData(userID, eventID string) *Collection[types.EventMetaData] {
	return &Collection[types.EventMetaData]{
		Ref: c.fs.Collection(shared.CollectionUsers).Doc(userID).
			Collection(shared.CollectionEvents).Doc(eventID).
			Collection(shared.CollectionMetaData),
		ToFirestore:   MetaDataToFirestore,
		FromFirestore: FirestoreToMetaData,
	}
}
