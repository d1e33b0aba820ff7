// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package config loads the agent configuration with koanf.

Sources are layered, later ones winning:

 1. Defaults from defaultConfig
 2. YAML file: $CONFIG_PATH, ./gradesync.yaml, ./config.yaml or
    /etc/gradesync/config.yaml
 3. Environment variables

Only the variables in envMappings are read. The common ones:

	GRADESYNC_REMOTE_URL     remote.base_url (required)
	GRADESYNC_REMOTE_TOKEN   remote.api_token
	GRADESYNC_DATA_DIR       store.path
	GRADESYNC_TEACHER_ID     preload.teacher_id
	GRADESYNC_CACHE_MAX_STALE, GRADESYNC_CACHE_BOUNDED
	                         offline staleness bound and the resources it
	                         applies to (comma-separated)
	GRADESYNC_HTTP_PORT      server.port
	LOG_LEVEL, LOG_FORMAT    logging

Example file:

	remote:
	  base_url: https://records.example-school.edu.gh/api
	  timeout: 20s
	cache:
	  ttl: 5m
	  max_stale: 72h
	  bounded_resources: [grades, evaluations]
	preload:
	  teacher_id: tch-104
*/
package config
