package cmdflow

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

// ThreadInfoFormatter merges every session's "-thread-info" response into
// a single global listing: each local tid is rewritten to its global id
// and the coordinator's own notion of "current thread" (not any one
// backend's) is reported.
type ThreadInfoFormatter struct{}

func (ThreadInfoFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	merged := make([]mi.Value, 0)
	for _, r := range fc.Responses {
		if r.Payload == nil {
			continue
		}
		threads, ok := r.Payload.GetList("threads")
		if !ok {
			continue
		}
		for _, th := range threads {
			if th.Kind != mi.KindDict || th.Dict == nil {
				continue
			}
			id, ok := th.Dict.GetString("id")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(id, 10, 64)
			if err != nil {
				continue
			}
			gtid, ok := ctx.Store.Threads.GTID(state.LocalThreadID{SID: r.SID, TID: n})
			if !ok {
				continue
			}
			entry := mi.NewDict()
			for _, k := range th.Dict.Keys() {
				if k == "id" {
					entry.Set("id", mi.String(strconv.FormatUint(gtid, 10)))
					continue
				}
				entry.SetRaw(k, th.Dict.Raw(k))
			}
			merged = append(merged, mi.DictValue(entry))
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		a, _ := merged[i].Dict.GetString("id")
		b, _ := merged[j].Dict.GetString("id")
		an, _ := strconv.ParseUint(a, 10, 64)
		bn, _ := strconv.ParseUint(b, 10, 64)
		return an < bn
	})

	d := mi.NewDict()
	d.Set("threads", mi.List(merged))
	if curr, ok := ctx.Store.CurrentThread(); ok {
		d.Set("current-thread-id", mi.String(strconv.FormatUint(curr, 10)))
	}
	return mi.Format(mi.RecordResult, "done", d, fc.extToken())
}

// ProcessInfoFormatter renders "-list-thread-groups" output, one entry per
// global thread-group id across every session.
type ProcessInfoFormatter struct{}

func (ProcessInfoFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	groups := make([]mi.Value, 0)
	for _, r := range fc.Responses {
		if r.Payload == nil {
			continue
		}
		list, ok := r.Payload.GetList("groups")
		if !ok {
			continue
		}
		for _, g := range list {
			if g.Kind != mi.KindDict || g.Dict == nil {
				continue
			}
			id, ok := g.Dict.GetString("id")
			if !ok {
				continue
			}
			gtgid, ok := ctx.Store.Threads.GTGID(state.LocalThreadGroupID{SID: r.SID, TGID: id})
			if !ok {
				continue
			}
			entry := mi.NewDict()
			for _, k := range g.Dict.Keys() {
				if k == "id" {
					entry.Set("id", mi.String(state.FormatGroupID(gtgid)))
					continue
				}
				entry.SetRaw(k, g.Dict.Raw(k))
			}
			groups = append(groups, mi.DictValue(entry))
		}
	}
	d := mi.NewDict()
	d.Set("groups", mi.List(groups))
	return mi.Format(mi.RecordResult, "done", d, fc.extToken())
}

// ProcessReadableFormatter renders the same listing as ProcessInfoFormatter
// but as a flat human-readable stream-text line rather than an MI
// dict/list, for callers driving the coordinator interactively.
type ProcessReadableFormatter struct{}

func (ProcessReadableFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	lines := ""
	for _, r := range fc.Responses {
		if r.Payload == nil {
			continue
		}
		list, ok := r.Payload.GetList("groups")
		if !ok {
			continue
		}
		for _, g := range list {
			if g.Kind != mi.KindDict || g.Dict == nil {
				continue
			}
			id, ok := g.Dict.GetString("id")
			if !ok {
				continue
			}
			gtgid, ok := ctx.Store.Threads.GTGID(state.LocalThreadGroupID{SID: r.SID, TGID: id})
			if !ok {
				continue
			}
			pid, _ := g.Dict.GetString("pid")
			lines += fmt.Sprintf("%s\tpid=%s\tsession=%d\n", state.FormatGroupID(gtgid), pid, r.SID)
		}
	}
	return mi.FormatStreamText(lines)
}
