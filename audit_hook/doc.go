// Package audithook is an extension that writes an audit trail of deal
// workflow runs.
//
// Every run and step lifecycle hook produces an [AuditEvent] carrying the
// run's domain status and reason, so the trail reads as the deal's
// history: "nda run moved to PENDING_LEGAL_REVIEW", "investment run
// failed: transfer rejected". Events go to a [Recorder]; [LogRecorder]
// writes them as structured log records.
//
//	eng, _ := engine.New(st,
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(logger),
//	        audithook.WithActions(audithook.ActionRunFailed, audithook.ActionRunCancelled),
//	    )),
//	)
package audithook
