package model

import "time"

// QuotaUsage is the API quota spent on one day for one operation type.
type QuotaUsage struct {
	Date          time.Time `json:"date"`
	OperationType string    `json:"operation_type"`
	QuotaUsed     int       `json:"quota_used"`
	Calls         int       `json:"calls"`
}

// QuotaInfo summarizes today's quota against the daily limit.
type QuotaInfo struct {
	QuotaUsed      int `json:"quota_used"`
	QuotaLimit     int `json:"quota_limit"`
	QuotaRemaining int `json:"quota_remaining"`
	Calls          int `json:"calls"`
}
