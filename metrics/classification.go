package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// Accuracy は正解率（正しく分類されたサンプルの割合）を計算する
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columns("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := range t {
		if t[i] == p[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(t)), nil
}

// ErrorRate は誤分類率（1 - Accuracy）を計算する
func ErrorRate(yTrue, yPred mat.Matrix) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}
