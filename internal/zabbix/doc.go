// Package zabbix is a small JSON-RPC client for the Zabbix API.
//
// Every call is retried for transport failures, 5xx/408 statuses and
// undecodable bodies (three attempts, exponential backoff with jitter,
// bounded by the call timeout). API error objects and responses without a
// result fail immediately.
package zabbix
