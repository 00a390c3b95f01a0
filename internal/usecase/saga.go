package usecase

import "context"

// 成功したリモート操作ごとに取り消しを積む
type sagaStep struct {
	name       string
	compensate func(ctx context.Context, reason string)
}

type saga struct {
	steps []sagaStep
}

func (s *saga) push(name string, compensate func(ctx context.Context, reason string)) {
	s.steps = append(s.steps, sagaStep{name: name, compensate: compensate})
}

// 積んだ逆順で取り消す。取り消した名前を返す
func (s *saga) unwind(ctx context.Context, reason string) []string {
	done := make([]string, 0, len(s.steps))
	for i := len(s.steps) - 1; i >= 0; i-- {
		s.steps[i].compensate(ctx, reason)
		done = append(done, s.steps[i].name)
	}
	s.steps = nil
	return done
}
