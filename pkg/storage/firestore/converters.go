package firestore

import (
	"time"

	"github.com/quantifiedself/ingest-server/pkg/types"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Helper to safely get bool from map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Helper to safely get int from map (Firestore stores numbers as int64/float64)
func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}

// Helper to safely get float from map
func getFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

// Helper to safely get time from map
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// --- QueueItem Converters ---

func QueueItemToFirestore(q *types.QueueItem) map[string]interface{} {
	m := map[string]interface{}{
		"id":                q.ID,
		"user_id":           q.UserID,
		"activity_id":       q.ActivityID,
		"service_name":      q.ServiceName,
		"retry_count":       q.RetryCount,
		"total_retry_count": q.TotalRetryCount,
		"next_possible_run": q.NextPossibleRun,
		"processed":         q.Processed,
		"created_at":        q.CreatedAt,
	}
	if !q.ProcessedAt.IsZero() {
		m["processed_at"] = q.ProcessedAt
	}
	if len(q.Errors) > 0 {
		errs := make([]interface{}, 0, len(q.Errors))
		for _, e := range q.Errors {
			errs = append(errs, map[string]interface{}{
				"message":        e.Message,
				"at_retry_count": e.AtRetryCount,
				"at":             e.At,
			})
		}
		m["errors"] = errs
	}
	return m
}

func FirestoreToQueueItem(m map[string]interface{}) *types.QueueItem {
	item := &types.QueueItem{
		ID:              getString(m, "id"),
		UserID:          getString(m, "user_id"),
		ActivityID:      getString(m, "activity_id"),
		ServiceName:     getString(m, "service_name"),
		RetryCount:      getInt(m, "retry_count"),
		TotalRetryCount: getInt(m, "total_retry_count"),
		NextPossibleRun: getTime(m, "next_possible_run"),
		Processed:       getBool(m, "processed"),
		ProcessedAt:     getTime(m, "processed_at"),
		CreatedAt:       getTime(m, "created_at"),
	}

	if raw, ok := m["errors"].([]interface{}); ok {
		for _, v := range raw {
			em, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			item.Errors = append(item.Errors, &types.QueueItemError{
				Message:      getString(em, "message"),
				AtRetryCount: getInt(em, "at_retry_count"),
				At:           getTime(em, "at"),
			})
		}
	}

	return item
}

// --- ServiceCredential Converters ---

func CredentialToFirestore(c *types.ServiceCredential) map[string]interface{} {
	return map[string]interface{}{
		"userID":            c.UserID,
		"accessToken":       c.AccessToken,
		"accessTokenSecret": c.AccessTokenSecret,
	}
}

func FirestoreToCredential(m map[string]interface{}) *types.ServiceCredential {
	return &types.ServiceCredential{
		UserID:            getString(m, "userID"),
		AccessToken:       getString(m, "accessToken"),
		AccessTokenSecret: getString(m, "accessTokenSecret"),
	}
}

// --- DomainEvent Converters ---

func EventToFirestore(e *types.DomainEvent) map[string]interface{} {
	m := map[string]interface{}{
		"id":             e.ID,
		"name":           e.Name,
		"activity_type":  e.ActivityType,
		"start_time":     e.StartTime,
		"total_duration": e.TotalDuration,
		"total_distance": e.TotalDistance,
	}
	if len(e.Streams) > 0 {
		streams := make([]interface{}, 0, len(e.Streams))
		for _, s := range e.Streams {
			data := make([]interface{}, len(s.Data))
			for i, v := range s.Data {
				data[i] = v
			}
			streams = append(streams, map[string]interface{}{
				"type": s.Type,
				"data": data,
			})
		}
		m["streams"] = streams
	}
	return m
}

func FirestoreToEvent(m map[string]interface{}) *types.DomainEvent {
	e := &types.DomainEvent{
		ID:            getString(m, "id"),
		Name:          getString(m, "name"),
		ActivityType:  getString(m, "activity_type"),
		StartTime:     getTime(m, "start_time"),
		TotalDuration: getFloat(m, "total_duration"),
		TotalDistance: getFloat(m, "total_distance"),
	}

	if raw, ok := m["streams"].([]interface{}); ok {
		for _, v := range raw {
			sm, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			stream := &types.Stream{Type: getString(sm, "type")}
			if data, ok := sm["data"].([]interface{}); ok {
				for _, d := range data {
					if f, ok := d.(float64); ok {
						stream.Data = append(stream.Data, f)
					}
				}
			}
			e.Streams = append(e.Streams, stream)
		}
	}

	return e
}

// --- EventMetaData Converters ---

func MetaDataToFirestore(md *types.EventMetaData) map[string]interface{} {
	return map[string]interface{}{
		"service_name":       md.ServiceName,
		"service_workout_id": md.ServiceWorkoutID,
		"user_id":            md.UserID,
		"imported_at":        md.ImportedAt,
	}
}

func FirestoreToMetaData(m map[string]interface{}) *types.EventMetaData {
	return &types.EventMetaData{
		ServiceName:      getString(m, "service_name"),
		ServiceWorkoutID: getString(m, "service_workout_id"),
		UserID:           getString(m, "user_id"),
		ImportedAt:       getTime(m, "imported_at"),
	}
}
