// Package config handles configuration loading for hsauthd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	jwt:
//	  access_secret: "${HSAUTH_ACCESS_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	jwt:
//	  access_ttl: "4m"
//	  refresh_ttl: "120h"
//	session:
//	  pending_ttl: "5m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  base_url: "https://auth.example.com"
//
// SSI node:
//
//	node:
//	  url: "https://ssi.example.com/core"
//	  schema_id: "sch_xxx"
//
// Token signing (secrets are required and must differ):
//
//	jwt:
//	  access_secret: "${HSAUTH_ACCESS_SECRET}"
//	  refresh_secret: "${HSAUTH_REFRESH_SECRET}"
//
// Subscription gate:
//
//	subscription:
//	  enabled: true
//	  verify_url: "https://dashboard.example.com/hs/api/v2/subscription/verify"
//
// Refresh token storage (in-memory when addr is empty):
//
//	redis:
//	  addr: "localhost:6379"
package config
