package utils

import (
	"golang.org/x/exp/constraints"
)

// Map generates a sequence by applying a function to every element of input.
func Map[T any, U any](input []T, mapFunction func(T) U) []U {
	output := make([]U, len(input))

	for i := range input {
		output[i] = mapFunction(input[i])
	}

	return output
}

// GenMap builds a map from a sequence of items and a function deriving a key
// from each item.
func GenMap[T any, Key comparable](input []T, keyFunc func(T) Key) map[Key]T {
	output := make(map[Key]T, len(input))

	for _, value := range input {
		output[keyFunc(value)] = value
	}

	return output
}

// Reduce folds a sequence into a single value given an accumulation function.
func Reduce[T any, U any](input []T, foldFunc func(T, U) U) U {
	var result U

	for _, value := range input {
		result = foldFunc(value, result)
	}

	return result
}

// Filter returns the elements of input for which predicate returns true.
func Filter[T any](input []T, predicate func(T) bool) []T {
	output := make([]T, 0, len(input))

	for _, value := range input {
		if predicate(value) {
			output = append(output, value)
		}
	}

	return output
}

// Min returns the smallest element of a non-empty sequence.
func Min[T constraints.Ordered](input []T) T {
	min := input[0]

	for _, item := range input[1:] {
		if item < min {
			min = item
		}
	}

	return min
}

// Max returns the biggest element of a non-empty sequence.
func Max[T constraints.Ordered](input []T) T {
	max := input[0]

	for _, item := range input[1:] {
		if item > max {
			max = item
		}
	}

	return max
}
