// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

// Package validation checks write payloads before they enter the mutation
// log.
//
// It wraps go-playground/validator v10 in a lazily initialized singleton
// that reports fields by their JSON names and adds two school-specific
// rules:
//
//   - academicyear: "2025/2026", two consecutive years
//   - attendance day totals: present_days + absent_days <= total_days
//
// A record that fails validation is an input error. It is returned to the
// caller and never queued:
//
//	if err := validation.Record(grade); err != nil {
//	    if ve, ok := validation.IsValidationError(err); ok {
//	        apiErr := ve.ToAPIError()
//	        // respond 400 with apiErr
//	    }
//	    return err
//	}
package validation
