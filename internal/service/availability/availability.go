// Package availability は蔵書コピーの貸出状態を予約・貸出記録から導出します
// 状態を持たない純粋関数のみで構成され、並行に呼び出しても安全です
package availability

import "github.com/uma-arai/sbcntr-library/internal/model"

// ComputeStatus はコピーの状態を返します
// 貸出中が最優先で、次に予約中、どちらも無ければ利用可能です
// 他のコピーを参照する記録や完了済みの記録は無視します
func ComputeStatus(bookCopy model.BookCopy, activeReservations []model.Reservation, activeBorrows []model.Borrow) model.CopyStatus {
	for _, b := range activeBorrows {
		if b.CopyID == bookCopy.ID && b.IsActive() {
			return model.CopyStatusBorrowed
		}
	}
	for _, r := range activeReservations {
		if r.CopyID == bookCopy.ID && r.IsActive() {
			return model.CopyStatusReserved
		}
	}
	return model.CopyStatusAvailable
}

// Annotate は各コピーに ComputeStatus の結果を付与します
func Annotate(copies []model.BookCopy, reservations []model.Reservation, borrows []model.Borrow) []model.CopyWithStatus {
	// コピーごとに絞り込んでから判定する
	reservationsByCopy := make(map[int64][]model.Reservation)
	for _, r := range reservations {
		reservationsByCopy[r.CopyID] = append(reservationsByCopy[r.CopyID], r)
	}
	borrowsByCopy := make(map[int64][]model.Borrow)
	for _, b := range borrows {
		borrowsByCopy[b.CopyID] = append(borrowsByCopy[b.CopyID], b)
	}

	result := make([]model.CopyWithStatus, 0, len(copies))
	for _, c := range copies {
		result = append(result, model.CopyWithStatus{
			BookCopy: c,
			Status:   ComputeStatus(c, reservationsByCopy[c.ID], borrowsByCopy[c.ID]),
		})
	}
	return result
}

// GroupByLanguage はコピーを言語ごとにまとめます
// グループは最初に現れた言語の順、グループ内は入力順です。先頭のグループのみ Expanded になります
func GroupByLanguage(copies []model.CopyWithStatus) []model.LanguageGroup {
	groups := make([]model.LanguageGroup, 0)
	index := make(map[string]int)

	for _, c := range copies {
		i, ok := index[c.Language]
		if !ok {
			i = len(groups)
			index[c.Language] = i
			groups = append(groups, model.LanguageGroup{
				Language: c.Language,
				Expanded: i == 0,
				Copies:   make([]model.CopyWithStatus, 0, 1),
			})
		}
		groups[i].Copies = append(groups[i].Copies, c)
	}
	return groups
}
