package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's active credential.
func (r *CacheKeyStruct) CandidateSessionKey(formID, email string) string {
	return fmt.Sprintf("form:%s:candidate:%s:session", formID, email)
}

// AttemptStartKey returns the cache key for an attempt's server-recorded start time.
func (r *CacheKeyStruct) AttemptStartKey(formID, email string) string {
	return fmt.Sprintf("form:%s:candidate:%s:attempt_start", formID, email)
}

// CandidateAnswersKey returns the cache key for a candidate's autosaved answers.
func (r *CacheKeyStruct) CandidateAnswersKey(formID, email string) string {
	return fmt.Sprintf("form:%s:candidate:%s:answers", formID, email)
}

// FormDurationKey returns the cache key for a form's configured duration.
func (r *CacheKeyStruct) FormDurationKey(formID string) string {
	return fmt.Sprintf("form:%s:duration", formID)
}

// FormMonitorChannel returns the Redis PubSub channel name for a form's live monitor.
func (r *CacheKeyStruct) FormMonitorChannel(formID string) string {
	return fmt.Sprintf("form:%s:monitor", formID)
}

var CacheKey = NewCacheKeyStruct()
