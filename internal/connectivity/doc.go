// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package connectivity tracks whether the remote records service is reachable.

Monitor combines two observation sources: a periodic health probe (Run) and
reports pushed in by other components (Report), for example when the access
layer sees a transport error. Subscribers are told about transitions only:

	unsubscribe := monitor.Subscribe(func(ev connectivity.Event) {
	    if ev.Online {
	        go reconciler.Sync(context.Background())
	    }
	})
	defer unsubscribe()

Going offline requires FailureThreshold consecutive failed observations so a
single dropped probe on a flaky link does not flap the state. Going online
takes one success.

The signal is best effort: being online does not guarantee the next request
succeeds, and callers still handle transient failures.
*/
package connectivity
