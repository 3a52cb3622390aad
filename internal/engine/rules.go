package engine

// Version identifies the embedded progression rule set. Reported by the
// health endpoint and bumped whenever the rules change semantics.
const Version = "1.2.0"

// schemaDecls declares every predicate the extractor may assert (EDB) and
// every predicate the rules derive (IDB). Facts whose predicate is not
// declared here are rejected at insertion.
const schemaDecls = `
# --- session event log (EDB) ---
Decl mission_session(UserId, SessionId, Level) bound [/string, /string, /number].
Decl question_count(N) bound [/number].
Decl team_threshold(Permille) bound [/number].
Decl risk_multiplier(M) bound [/number].
Decl team_multiplier(M) bound [/number].
Decl risk_index(Idx) bound [/number].
Decl team_index(Idx) bound [/number].
Decl question_index(Idx) bound [/number].
Decl base_points(Idx, Points) bound [/number, /number].
Decl watched(Idx) bound [/number].
Decl answer(Idx, Part, Correct) bound [/number, /name, /name].
Decl team_answer(Member, Correct) bound [/string, /name].
Decl challenge_override(Idx) bound [/number].
Decl deadline(Ms) bound [/number].
Decl now(Ms) bound [/number].

# --- derived (IDB) ---
Decl risk_part_bad(Idx) bound [/number].
Decl risk_complete(Idx) bound [/number].
Decl correct_at(Idx) bound [/number].
Decl correct_count(N) bound [/number].
Decl outstanding(Idx) bound [/number].
Decl risk_reset(F) bound [/number].
Decl deadline_reset(F) bound [/number].
Decl mission_passed(F) bound [/number].
Decl decision_status(Status) bound [/name].
Decl part_points(Idx, Part, Points) bound [/number, /name, /number].
Decl points_raw(Total) bound [/number].
Decl team_correct(N) bound [/number].
Decl team_size(N) bound [/number].
Decl team_success(F) bound [/number].
Decl multiplier(Idx, M) bound [/number, /number].
Decl final_points_at(Idx, Points) bound [/number, /number].
Decl points_final(Total) bound [/number].
Decl next_question(Idx) bound [/number].
`

// progressionRules encodes the decision semantics. Status precedence is
// RESET_RISK > RESET_DEADLINE > PASSED > IN_PROGRESS; the guards on the later
// rules keep the strata disjoint so exactly one decision_status fact is ever
// derived per fact set.
const progressionRules = `
# A risk question part answered incorrectly taints the session unless a passed
# boss challenge forgave that index.
risk_part_bad(Idx) :- risk_index(Idx), answer(Idx, _, /false), !challenge_override(Idx).

# A risk question counts as passed only when both parts are correct. The
# submission order of the parts is irrelevant.
risk_complete(Idx) :- risk_index(Idx), answer(Idx, /a, /true), answer(Idx, /b, /true).

correct_at(Idx) :- question_index(Idx), answer(Idx, /none, /true), !risk_index(Idx).
correct_at(Idx) :- risk_complete(Idx).

correct_count(N) :-
    correct_at(Idx) |>
    do fn:group_by(),
    let N = fn:count().

outstanding(Idx) :- question_index(Idx), !correct_at(Idx).

# Lowest index with an outstanding required part. A risk question with only
# one part answered stays outstanding and therefore reports itself.
next_question(N) :-
    outstanding(Idx) |>
    do fn:group_by(),
    let N = fn:min(Idx).

risk_reset(1) :- risk_part_bad(_).

# Deadline check runs strictly after the risk check: a missed deadline on a
# tainted session still reports the risk reset.
deadline_reset(1) :- now(T), deadline(D), D < T, outstanding(Idx), !risk_reset(1).

mission_passed(1) :- correct_count(N), question_count(N), !risk_reset(1).

decision_status(/reset_risk)     :- risk_reset(1).
decision_status(/reset_deadline) :- deadline_reset(1).
decision_status(/passed)         :- mission_passed(1).
decision_status(/in_progress)    :-
    mission_session(UserId, SessionId, Level),
    !risk_reset(1), !deadline_reset(1), !mission_passed(1).

# Raw points: base points once per correctly answered part, no multipliers.
part_points(Idx, Part, P) :- answer(Idx, Part, /true), base_points(Idx, P).

points_raw(Total) :-
    part_points(Idx, Part, P) |>
    do fn:group_by(),
    let Total = fn:sum(P).

# Team scoring affects points only, never pass/fail. Threshold arithmetic is
# done in integer permille.
team_correct(N) :-
    team_answer(Member, /true) |>
    do fn:group_by(),
    let N = fn:count().

team_size(N) :-
    team_answer(Member, Correct) |>
    do fn:group_by(),
    let N = fn:count().

team_success(1) :-
    team_correct(C), team_size(T), team_threshold(Th),
    Scaled = fn:mult(C, 1000), Needed = fn:mult(T, Th), Needed <= Scaled.

multiplier(Idx, M) :- risk_index(Idx), risk_multiplier(M).
multiplier(Idx, M) :- team_index(Idx), team_success(1), team_multiplier(M).
multiplier(Idx, 1) :- team_index(Idx), !team_success(1).
multiplier(Idx, 1) :- question_index(Idx), !risk_index(Idx), !team_index(Idx).

# Final points exist only for passed missions: every index scored at its
# multiplied base value. Multipliers are integral, so no rounding loss.
final_points_at(Idx, P) :- mission_passed(1), base_points(Idx, B), multiplier(Idx, M), P = fn:mult(B, M).

points_final(Total) :-
    final_points_at(Idx, P) |>
    do fn:group_by(),
    let Total = fn:sum(P).
`

// Status name constants as they come back from the store.
const (
	StatusInProgress    = "/in_progress"
	StatusPassed        = "/passed"
	StatusResetRisk     = "/reset_risk"
	StatusResetDeadline = "/reset_deadline"
)
