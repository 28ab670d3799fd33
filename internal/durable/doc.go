// Package durable — in-process durable-execution runtime для orchestration
// instances.
//
// Каждый instance — одна горутина, выполняющая orchestration-функцию.
// Все side-effect'ы функции проходят через пять replay-safe примитивов
// Context (CallEntity, CallActivity, CreateTimer, WaitForExternalEvent,
// CurrentTime); результат каждого примитива мемоизируется в журнале.
// При повторном запуске (рестарт процесса, continue-as-new) функция
// выполняется с начала, но мемоизированные результаты возвращаются из
// журнала без повторения эффектов — исполнение детерминировано
// воспроизводится до точки прерывания.
//
// Между suspension points код instance выполняется без вытеснения,
// поэтому внутри одного instance дополнительная синхронизация не нужна.
// Единственное разделяемое состояние между instances — durable entities,
// сериализуемые своим host'ом по ключу.
package durable
