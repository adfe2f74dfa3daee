package convert

import "context"

type PlainTextConverter struct{}

func (PlainTextConverter) Convert(_ context.Context, raw []byte) (Result, error) {
	return Result{Text: normalize(string(raw)), ContentType: "text/plain"}, nil
}
