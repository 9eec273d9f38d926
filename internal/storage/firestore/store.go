package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const (
	usersCollection         = "users"
	tokensCollection        = "tokens"
	notificationsCollection = "notifications"
)

// FirestoreStore implements the dispatch stores on Google Cloud Firestore:
//
//	users/{uid}                         {fcmToken}
//	tokens/{token}                      {uid}
//	users/{uid}/notifications/{autoId}  {title, body, type, data, createdAt, read}
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// notificationDoc is the stored representation of an in-app notification.
type notificationDoc struct {
	Title     string            `firestore:"title"`
	Body      string            `firestore:"body"`
	Type      string            `firestore:"type"`
	Data      map[string]string `firestore:"data"`
	CreatedAt time.Time         `firestore:"createdAt,serverTimestamp"`
	Read      bool              `firestore:"read"`
}

func (s *FirestoreStore) GetUser(ctx context.Context, uid string) (*notification.UserRecord, error) {
	snap, err := s.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", uid, err)
	}

	// Other clients own this document and write many more fields; read only what we need.
	return &notification.UserRecord{
		UID:      uid,
		FCMToken: stringField(snap.Data(), "fcmToken"),
	}, nil
}

func (s *FirestoreStore) GetOwner(ctx context.Context, token string) (string, error) {
	snap, err := s.client.Collection(tokensCollection).Doc(token).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", dispatch.ErrRecordNotFound
		}
		return "", fmt.Errorf("failed to get token owner: %w", err)
	}
	return stringField(snap.Data(), "uid"), nil
}

func (s *FirestoreStore) AddNotification(ctx context.Context, uid string, record notification.NotificationRecord) (string, error) {
	data := record.Data
	if data == nil {
		data = map[string]string{}
	}
	doc := notificationDoc{
		Title: record.Title,
		Body:  record.Body,
		Type:  record.Type,
		Data:  data,
		Read:  false,
	}

	ref, _, err := s.notifications(uid).Add(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to add notification: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) ListNotifications(ctx context.Context, uid string, limit int) ([]notification.StoredNotification, error) {
	iter := s.notifications(uid).OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	list := make([]notification.StoredNotification, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var doc notificationDoc
		if err := snap.DataTo(&doc); err != nil {
			// Documents written by other clients may not match; skip them.
			continue
		}
		list = append(list, notification.StoredNotification{
			ID:        snap.Ref.ID,
			Title:     doc.Title,
			Body:      doc.Body,
			Type:      doc.Type,
			Data:      doc.Data,
			CreatedAt: doc.CreatedAt,
			Read:      doc.Read,
		})
	}
	return list, nil
}

func (s *FirestoreStore) CountUnread(ctx context.Context, uid string) (int, error) {
	q := s.notifications(uid).Where("read", "==", false)
	result, err := q.
		NewAggregationQuery().
		WithCount("unread").
		Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	v, ok := result["unread"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected aggregation result type %T", result["unread"])
	}
	return int(v.GetIntegerValue()), nil
}

func (s *FirestoreStore) notifications(uid string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(uid).Collection(notificationsCollection)
}

func stringField(data map[string]any, field string) string {
	v, _ := data[field].(string)
	return v
}
