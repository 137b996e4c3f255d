package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Notifier        = DiscardNotifier{}
	_ Notifier        = NotifierFunc(nil)
	_ MetricsRecorder = NopMetricsRecorder{}
	_ Fingerprinter   = PayloadFingerprinter{}
	_ Fingerprinter   = IdentityFingerprinter{}
	_ Fingerprinter   = FingerprinterFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
