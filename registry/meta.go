package registry

import (
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/table"
)

// sampleRows is how many leading rows Register returns for prompts and
// upload responses.
const sampleRows = 5

func buildMeta(sessionID, fileID, filename string, t *table.Table, now time.Time) core.FileMeta {
	stats := t.Stats()
	cols := make([]core.ColumnInfo, len(stats))
	for i, st := range stats {
		cols[i] = core.ColumnInfo{
			Name:        st.Name,
			Type:        st.DType.String(),
			NullCount:   st.NullCount,
			UniqueCount: st.Distinct,
		}
	}
	return core.FileMeta{
		FileID:           fileID,
		SessionID:        sessionID,
		OriginalFilename: filename,
		CreatedAt:        now,
		RowCount:         t.NumRows(),
		ColumnCount:      t.NumCols(),
		Columns:          cols,
	}
}

func buildResult(meta core.FileMeta, ref core.FileRef, t *table.Table) *core.RegisterResult {
	return &core.RegisterResult{
		Ref:    ref,
		Meta:   meta,
		Sample: t.Head(sampleRows).Records(),
	}
}
