package dedupe

import (
	"bytes"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/benchtrack/internal/domain/model"
)

// batchNamespace scopes batch ids to this service.
var batchNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("benchtrack.batch")) //nolint:gochecknoglobals // fixed namespace

// BatchID derives a stable id for a CI upload from its content. Re-sending the
// same results for the same commit yields the same id.
func BatchID(suite, tool string, commit *model.CommitRef, benches []model.RawMeasurement) string {
	var buf bytes.Buffer
	buf.WriteString(suite)
	buf.WriteByte(0)
	buf.WriteString(tool)
	buf.WriteByte(0)
	if commit != nil {
		buf.WriteString(commit.ID)
	}
	for _, b := range benches {
		buf.WriteByte(0)
		buf.WriteString(b.Name)
		buf.WriteByte(0)
		buf.WriteString(strconv.FormatUint(math.Float64bits(b.Value), 16))
		buf.WriteByte(0)
		buf.WriteString(b.Unit)
		buf.WriteByte(0)
		buf.WriteString(b.Extra)
	}
	return uuid.NewSHA1(batchNamespace, buf.Bytes()).String()
}
