package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/internquest/backend/core"
)

func TestToDocument(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	raw := bson.M{
		"_id":   "u1",
		"email": "a@b.c",
		"blockInfo": bson.D{
			{Key: "isBlocked", Value: true},
			{Key: "blockedAt", Value: primitive.NewDateTimeFromTime(at)},
		},
		"sections": bson.A{bson.M{"year": "4"}},
		"count":    int32(3),
	}

	doc := toDocument(raw)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, map[string]interface{}{
		"email":     "a@b.c",
		"blockInfo": map[string]interface{}{"isBlocked": true, "blockedAt": at},
		"sections":  []interface{}{map[string]interface{}{"year": "4"}},
		"count":     int32(3),
	}, doc.Data)

	oid := primitive.NewObjectID()
	assert.Equal(t, oid.Hex(), toDocument(bson.M{"_id": oid}).ID)
}

func TestUpdateDoc(t *testing.T) {
	w := core.DocWrite{
		Collection: "users",
		ID:         "u1",
		Set:        map[string]interface{}{"studentId": "12-345", "updatedAt": core.ServerTimestamp},
		Unset:      []string{"studentNumber", "studentId"},
	}
	assert.Equal(t, bson.M{
		"$set":         map[string]interface{}{"studentId": "12-345"},
		"$currentDate": bson.M{"updatedAt": true},
		"$unset":       bson.M{"studentNumber": ""},
	}, updateDoc(w))

	assert.Equal(t, bson.M{"$unset": bson.M{"studentNumber": ""}}, updateDoc(core.DocWrite{Unset: []string{"studentNumber"}}))
}

func TestIsLocalURI(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{uri: "mongodb://localhost:27017", want: true},
		{uri: "mongodb://127.0.0.1:27017,localhost:27018/internquest?replicaSet=rs0", want: true},
		{uri: "mongodb://user:p%40ss@[::1]:27017", want: true},
		{uri: "mongodb://db.internal:27017", want: false},
		{uri: "mongodb://localhost:27017,db.internal:27017", want: false},
		{uri: "mongodb+srv://cluster0.example.net", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, isLocalURI(tt.uri))
		})
	}
}
