// Package metrics は学習済みモデルの評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/pkg/errors"
)

// column は n×1 行列から値列を取り出す
func column(op string, y mat.Matrix) ([]float64, error) {
	r, c := y.Dims()
	if r == 0 {
		return nil, errors.NewValueError(op, "empty target")
	}
	if c != 1 {
		return nil, errors.NewValueError(op, "target must be a column vector (n×1 matrix)")
	}

	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = y.At(i, 0)
	}
	return out, nil
}

func columns(op string, yTrue, yPred mat.Matrix) ([]float64, []float64, error) {
	t, err := column(op, yTrue)
	if err != nil {
		return nil, nil, err
	}
	p, err := column(op, yPred)
	if err != nil {
		return nil, nil, err
	}
	if len(t) != len(p) {
		return nil, nil, errors.NewDimensionError(op, len(t), len(p), 0)
	}
	return t, p, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columns("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := range t {
		diff := t[i] - p[i]
		sum += diff * diff
	}
	return sum / float64(len(t)), nil
}

// RMSE は二乗平均平方根誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columns("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := range t {
		sum += math.Abs(t[i] - p[i])
	}
	return sum / float64(len(t)), nil
}

// R2Score は決定係数（R²）を計算する
//
// R² = 1 - SS_res / SS_tot
//
// 真値の分散がゼロの場合、予測が完全一致なら 1、そうでなければ 0 を返す。
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columns("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var mean float64
	for _, v := range t {
		mean += v
	}
	mean /= float64(len(t))

	var ssRes, ssTot float64
	for i := range t {
		d := t[i] - p[i]
		ssRes += d * d
		m := t[i] - mean
		ssTot += m * m
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}
