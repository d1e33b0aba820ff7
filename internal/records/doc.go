// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package records is the teacher-facing facade over the offline data layer.

Reads (GetStudents, GetClasses, GetSubjects, GetAssignments) return the
durable reference copy from the local store immediately when one exists,
tagged IsFromCache. While the remote service is reachable a background
refresh replaces that copy; Wait blocks until refreshes finish. A scope that
was never stored is read through the cache-first access layer and persisted.

Writes (SaveGrade, SaveAttendance, SaveEvaluation, SaveStudent) are
validated, appended to the mutation log, announced to the event hub and,
when online, sent once right away:

	res, err := svc.SaveGrade(ctx, grade)
	// err != nil: invalid input or the local store failed; nothing queued
	// res.Status == StatusSynced: remote service confirmed the write
	// res.Status == StatusQueued: durable locally, the reconciler will send it

Network errors never reach the caller of a write.

PreloadData warms every reference collection a teacher needs before going
offline and reports which collections could not be refreshed.
*/
package records
