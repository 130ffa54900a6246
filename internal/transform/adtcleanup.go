package transform

import "github.com/localbridge/hl7bridge/internal/wrapi"

// adtCleanupScript is the fixed ADT normalization pipeline the original
// JVM-loaded AdtCleanupJavaTransformer class encoded: pin the sending and
// receiving facilities (MSH-4, MSH-6) and the version, clear patient
// name, mother's maiden name, birth date and sex (PID-5..8), drop
// insurance, procedure and allergy segments, keep at most two home
// phone repetitions (PID-13), and mark the message as having passed
// through this pipeline.
const adtCleanupScript = `
SET MSH-4 "MAIN_HOSPITAL"
SET MSH-6 "PRIMARY_SYSTEM"
SET MSH-12 "2.2"
CLEAR PID-5
CLEAR PID-6
CLEAR PID-7
CLEAR PID-8
DELSEG IN1
DELSEG PR1
DELSEG AL1
DELSEG IN2
TRUNC PID-13,2
ADDSEG after PID "NTE|1|PROCESSED|ADT_CLEANUP"
ADDSEG "ZXT|1|PROCESSED|ADT_CLEANUP"
SAVE
`

func newAdtCleanupTransformer() Transformer {
	script, err := wrapi.Compile(adtCleanupScript)
	if err != nil {
		// adtCleanupScript is a compile-time constant; a failure here is a
		// programming error, not a runtime condition callers can recover from.
		panic("transform: adtCleanupScript failed to compile: " + err.Error())
	}
	return &WrapiTransformer{Script: script, CreateMissing: true}
}

func init() {
	Register("localbridge.AdtCleanupTransformer", newAdtCleanupTransformer)
}
