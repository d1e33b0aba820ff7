// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package models defines the data structures shared by every Gradesync package.

Record Models:

  - Student, Class, Subject, SubjectAssignment: reference data pulled from the
    remote records service and cached locally per scope
  - Grade, Attendance, Evaluation: teacher-authored records written through
    the mutation log

Mutation Log:

QueueItem is a tagged union. Kind selects which payload pointer is populated
(Grade, Attendance, Evaluation or Student) and Action selects the remote verb.
State follows the lifecycle

	pending -> syncing -> synced
	                   -> failed -> pending

A failed item is never dropped; it waits for a manual or scheduled retry.

API Models:

  - APIResponse, Metadata, APIError: envelope of the local HTTP API
*/
package models
