package devserver

import (
	"context"
	"encoding/json"
	"fmt"
)

// RegisterBuiltins はCLIのserveコマンドで公開する組み込み関数を登録する。
//
//	echo    引数をそのまま配列で返す
//	sum     数値引数の合計を返す
//	whoami  呼び出しユーザーのIDを返す
func RegisterBuiltins(r *Registry) {
	r.Register("echo", func(_ context.Context, call Call) (any, error) {
		return call.Arguments, nil
	})
	r.Register("sum", sumFunction)
	r.Register("whoami", func(_ context.Context, call Call) (any, error) {
		return map[string]string{"user_id": call.UserID}, nil
	})
}

func sumFunction(_ context.Context, call Call) (any, error) {
	var total float64
	for i, arg := range call.Arguments {
		n, ok := arg.(json.Number)
		if !ok {
			return nil, fmt.Errorf("argument %d is not a number", i)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		total += f
	}
	return total, nil
}
